// Package deps checks the external binaries wmclean shells out to and installs
// a portable ffmpeg bundle when the host has none.
package deps
