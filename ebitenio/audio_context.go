package ebitenio

import (
	"github.com/erparts/reisen"
	"github.com/hajimehoshi/ebiten/v2/audio"
)

// CreateAudioContextForMedia probes the media's first audio stream and
// creates the global Ebitengine audio context at its sample rate. Call it
// once, before building a player for that media. Media without audio gets
// a 44.1 kHz context so later sources still have one to attach to.
func CreateAudioContextForMedia(path string) error {
	sampleRate := 44100
	media, err := reisen.NewMedia(path)
	if err != nil {
		return err
	}
	if streams := media.AudioStreams(); len(streams) > 0 {
		sampleRate = streams[0].SampleRate()
	}
	media.Close()
	if audio.CurrentContext() == nil {
		audio.NewContext(sampleRate)
	}
	return nil
}
