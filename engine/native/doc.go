// Package native loads engine builds shipped as shared libraries.
//
// On Linux and macOS (amd64, arm64) the library is opened with purego's
// dlopen and entry points are called with purego.SyscallN. On Windows it is
// loaded with x/sys/windows and called through the system calling
// convention. Other platforms get a loader that always fails.
//
// Callbacks reach Go through one trampoline per callback signature, created
// once per process. Table and defragmentation callbacks carry the guard
// handle in their context word. Status callbacks have no context word, so
// the trampoline routes them to the status handle passed most recently;
// only one backup or restore per process should run at a time.
//
// The engine itself is process-global, so only one Library may be open at
// a time.
package native
