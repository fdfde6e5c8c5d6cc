// Package golshbox implements a library of Locality-Sensitive Hashing
// indexes for approximate nearest neighbor search over fixed-dimension
// numeric vectors under L1/L2 distance.
//
// # Packages
//
//   - pkg/matrix holds the dataset as rows of a fixed element type.
//   - pkg/metric computes L1/L2 distance between rows.
//   - pkg/topk collects the K closest candidates seen during a query.
//   - pkg/scanner dedups candidates across hash tables and feeds a TopK.
//   - pkg/lshindex implements the eight hash families: rbs, rhp, th,
//     psd, sh, itq, dbq, kdbq.
//   - pkg/benchmark builds and persists recall benchmarks.
//
// Every family is built once over a Matrix, then queried; Insert adds
// single rows to the built tables, and no family supports deletion.
package golshbox
