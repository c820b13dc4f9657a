package sim

import (
	"context"
	"sync"

	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/libos"
)

func (r *runner) selfExit(ctx context.Context) error {
	p, err := r.spawn(0)
	if err != nil {
		return err
	}
	k := p.kernel
	k.Go(k.Main(), exitWith(k, r.opts.ExitCode))
	return r.wait(ctx, p)
}

func (r *runner) localParent(ctx context.Context) (*ParentReport, error) {
	p, err := r.spawn(0)
	if err != nil {
		return nil, err
	}
	k := p.kernel
	main := k.Main()
	child := p.thread(libos.ThreadSpec{Parent: main, UID: 1000})

	seen := make(chan *ParentReport, 1)
	k.Go(main, func(tctx context.Context, ec *domain.ExecContext) {
		k.Go(child, exitWith(k, r.opts.ExitCode))
		_ = child.ExitEvent.Wait(ctx)
		seen <- parentReport(main)
		k.Exit(tctx, ec, 0)
	})

	if err := r.wait(ctx, p); err != nil {
		return nil, err
	}
	return <-seen, nil
}

func (r *runner) remoteParent(ctx context.Context) (*ParentReport, error) {
	parent, err := r.spawn(0)
	if err != nil {
		return nil, err
	}
	child, err := r.spawn(parent.kernel.PID())
	if err != nil {
		return nil, err
	}

	pk, ck := parent.kernel, child.kernel
	main := pk.Main()
	if _, err := pk.AdoptRemoteChild(main, ck.PID(), ck.Main().TID); err != nil {
		return nil, err
	}

	seen := make(chan *ParentReport, 1)
	pk.Go(main, func(tctx context.Context, ec *domain.ExecContext) {
		for !main.HasPending(domain.SIGCHLD) {
			select {
			case <-main.ChildExitEvent.C():
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		seen <- parentReport(main)
		pk.Exit(tctx, ec, 0)
	})
	ck.Go(ck.Main(), exitWith(ck, r.opts.ExitCode))

	if err := r.wait(ctx, child); err != nil {
		return nil, err
	}
	if err := r.wait(ctx, parent); err != nil {
		return nil, err
	}
	return <-seen, nil
}

func (r *runner) groupExit(ctx context.Context) error {
	p, err := r.spawn(0)
	if err != nil {
		return err
	}
	k := p.kernel
	for i := 1; i < r.opts.Threads; i++ {
		t := p.thread(libos.ThreadSpec{Parent: k.Main()})
		k.Go(t, parked(ctx, k))
	}
	k.Go(k.Main(), func(tctx context.Context, ec *domain.ExecContext) {
		k.ExitGroup(tctx, ec, r.opts.ExitCode)
	})
	return r.wait(ctx, p)
}

func (r *runner) alreadyDead(ctx context.Context) error {
	p, err := r.spawn(0)
	if err != nil {
		return err
	}
	k := p.kernel
	worker := p.thread(libos.ThreadSpec{Parent: k.Main()})

	k.Go(k.Main(), func(tctx context.Context, ec *domain.ExecContext) {
		for i := 0; i < 2; i++ {
			if err := k.TerminateThread(tctx, worker); err != nil {
				k.Logger().Warn("terminate worker failed", "tid", worker.TID, "error", err)
			}
		}
		k.Exit(tctx, ec, r.opts.ExitCode)
	})
	return r.wait(ctx, p)
}

func (r *runner) threadsExit(ctx context.Context) error {
	p, err := r.spawn(0)
	if err != nil {
		return err
	}
	k := p.kernel

	threads := []*domain.Thread{k.Main()}
	for i := 1; i < r.opts.Threads; i++ {
		threads = append(threads, p.thread(libos.ThreadSpec{Parent: k.Main()}))
	}

	var ready sync.WaitGroup
	ready.Add(len(threads))
	start := make(chan struct{})
	for _, t := range threads {
		k.Go(t, func(tctx context.Context, ec *domain.ExecContext) {
			ready.Done()
			<-start
			k.Exit(tctx, ec, r.opts.ExitCode)
		})
	}
	ready.Wait()
	close(start)
	return r.wait(ctx, p)
}

func (r *runner) kill(ctx context.Context) error {
	p, err := r.spawn(0)
	if err != nil {
		return err
	}
	k := p.kernel

	k.Go(k.Main(), parked(ctx, k))
	for i := 1; i < r.opts.Threads; i++ {
		t := p.thread(libos.ThreadSpec{Parent: k.Main()})
		k.Go(t, parked(ctx, k))
	}
	if err := k.After(killDelay, func() { k.Kill(0) }); err != nil {
		return err
	}
	return r.wait(ctx, p)
}
