// Package output renders command results as tables, JSON or YAML.
//
// Table output comes from values that implement Tabular, or from *Table
// directly. JSON and YAML encode the value as is, so result types carry
// json and yaml tags.
package output
