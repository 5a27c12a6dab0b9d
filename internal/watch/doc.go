// Package watch observes the directory containing the previewed document and
// reports creation or modification of that one file. Everything else in the
// directory, including sub-directories and generated artifacts, is ignored.
package watch
