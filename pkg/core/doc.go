// Package core is the stable library surface of MASAT for external
// consumers: the shared data shapes, the fingerprint function, and the
// posture scorer. Internals may move; this path will not.
package core
