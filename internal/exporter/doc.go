// Package exporter writes the pipeline's file outputs.
//
// This package contains two main components:
//
// ShardWriter: streaming CSV writer with exact byte accounting, used by the
// combine and recombine steps to keep every output file under its size
// budget.
//
// Ledger workbook export: renders the duplicate-handling ledger to an XLSX
// workbook for auditors who review runs in a spreadsheet.
package exporter
