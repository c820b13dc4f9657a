// Package benchmark times whole exit scenarios across thread counts and the
// cost of persisting exit profiles with and without sealing.
//
//	go test -run=^$ -bench=Exit -benchmem ./internal/tests/benchmark/
//	go test -run=^$ -bench=Store -count=10 ./internal/tests/benchmark/ > new.txt && benchstat old.txt new.txt
package benchmark
