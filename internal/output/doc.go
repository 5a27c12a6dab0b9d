// Package output writes generated preview artifacts (the rendered document
// and the browser shell) to disk.
//
// Writes go through a temporary file in the destination directory followed
// by a rename, so the static file server never hands out a half-written
// document while a conversion is in progress.
package output
