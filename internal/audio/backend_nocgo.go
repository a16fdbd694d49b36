//go:build nocgo

package audio

// OtoBackend is unavailable in builds without cgo.
func OtoBackend(Config) (Backend, error) {
	return nil, ErrNoAudio
}
