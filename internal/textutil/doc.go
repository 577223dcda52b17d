// Package textutil derives filesystem-safe path segments and display titles
// from uploaded filenames.
package textutil
