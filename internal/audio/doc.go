// Package audio provides the single process-wide output device used by the
// playback scheduler. A Device fetches a clip, decodes it, resamples it for
// the current playback rate and plays it through a Backend (oto/v3 on real
// hardware, MockBackend in tests). Progress is reported as Ready, Ended and
// Error events tagged with the token passed to Assign.
package audio
