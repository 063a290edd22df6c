// Package normalisers contains the per-source record normalisers. Each
// sub-package maps one connector's raw record shape into canonical
// messages, applying that source's filtering rules on the way.
package normalisers
