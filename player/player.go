// Package player builds and drives the standard playback graph from a
// URL:
//
//	          video0 -> decoder -> queue -> videoconvert -> videosink
//	demuxer ->
//	          audio0 -> decoder -> queue -> audioconvert -> audiosink
//
// The audio sink's clock masters synchronization; without audio the
// pipeline's external clock takes over. Rendering and audio output stay
// injected: hand the player a renderer and an audio device (for example
// the ebitenio ones) before playing.
package player

import (
	"strings"
	"sync"

	avpipe "github.com/erparts/go-avpipe"
	"github.com/erparts/go-avpipe/elements"
	"github.com/erparts/go-avpipe/reisenmedia"
)

// A Player is the façade over one playback pipeline. Create it with
// [New], point it at a URL, inject the output ends, then Play.
type Player struct {
	mu sync.Mutex

	url      string
	options  map[string]string
	renderer elements.Renderer
	device   elements.AudioDevice
	loops    int
	volume   float64
	muted    bool

	state     avpipe.State
	loopsDone int

	pipeline  avpipe.Pipeline
	demuxer   *reisenmedia.Demuxer
	audioSink *elements.AudioSink
	videoSink *elements.VideoSink

	errorCb    func(avpipe.Code, string)
	positionCb func(float64)
	stateCb    func(avpipe.State)
}

// New creates an idle player at full volume.
func New() *Player {
	return &Player{
		options: make(map[string]string),
		state:   avpipe.StateNull,
		volume:  1.0,
	}
}

// --- configuration ---

// SetURL selects the media source, stopping any current playback.
func (p *Player) SetURL(url string) {
	p.Stop()
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

// SetOption records a reader option such as [avpipe.PropHTTPUserAgent].
func (p *Player) SetOption(key, value string) {
	p.mu.Lock()
	p.options[key] = value
	p.mu.Unlock()
}

// SetRenderer injects the video presentation surface; without one the
// video branch is not built.
func (p *Player) SetRenderer(r elements.Renderer) {
	p.mu.Lock()
	p.renderer = r
	p.mu.Unlock()
}

// SetAudioDevice injects the audio output; without one the audio branch
// is not built and the external clock paces the video.
func (p *Player) SetAudioDevice(d elements.AudioDevice) {
	p.mu.Lock()
	p.device = d
	p.mu.Unlock()
}

// SetLoops configures how many times playback restarts after the end of
// the media; negative means forever.
func (p *Player) SetLoops(n int) {
	p.mu.Lock()
	p.loops = n
	p.mu.Unlock()
}

// SetVolume sets the audio volume. Without an audio branch this only
// records the value for the next load.
func (p *Player) SetVolume(volume float64) {
	p.mu.Lock()
	p.volume = volume
	sink := p.audioSink
	p.mu.Unlock()
	if sink != nil {
		sink.SetVolume(volume)
	}
}

// Volume returns the audio volume, 0 when the media has no audio.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audioSink == nil {
		return 0
	}
	return p.volume
}

// SetMuted mutes or unmutes the audio without touching the volume.
func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	sink := p.audioSink
	p.mu.Unlock()
	if sink != nil {
		sink.SetMuted(muted)
	}
}

// Muted reports whether audio is muted; media without audio counts as
// muted.
func (p *Player) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audioSink == nil {
		return true
	}
	return p.muted
}

// SetErrorCallback installs the handler invoked once per raised error.
func (p *Player) SetErrorCallback(fn func(avpipe.Code, string)) { p.errorCb = fn }

// SetPositionCallback installs the handler fed with master clock updates.
func (p *Player) SetPositionCallback(fn func(float64)) { p.positionCb = fn }

// SetStateChangedCallback installs the handler fired on player state
// transitions.
func (p *Player) SetStateChangedCallback(fn func(avpipe.State)) { p.stateCb = fn }

// --- queries ---

// State returns the player's observable state.
func (p *Player) State() avpipe.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Duration returns the media duration in seconds, 0 before loading.
func (p *Player) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.demuxer == nil {
		return 0
	}
	return p.demuxer.Duration()
}

// Position returns the master clock position in seconds.
func (p *Player) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pipeline == nil {
		return 0
	}
	if master := p.pipeline.Controller().MasterClock(); master != nil {
		return master.Position()
	}
	return 0
}

// HasAudio reports whether the loaded media exposes an audio stream.
func (p *Player) HasAudio() bool { return p.hasPad("audio") }

// HasVideo reports whether the loaded media exposes a video stream.
func (p *Player) HasVideo() bool { return p.hasPad("video") }

func (p *Player) hasPad(prefix string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.demuxer == nil {
		return false
	}
	for _, pad := range p.demuxer.Outputs() {
		if strings.HasPrefix(pad.Name(), prefix) {
			return true
		}
	}
	return false
}

// IsSeekable reports whether the source supports repositioning.
func (p *Player) IsSeekable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.demuxer != nil && p.demuxer.IsSeekable()
}

// streamInfo collects the Metadata property of each demuxer pad whose
// name starts with the prefix.
func (p *Player) streamInfo(prefix string) []avpipe.Property {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.demuxer == nil {
		return nil
	}
	var infos []avpipe.Property
	for _, pad := range p.demuxer.Outputs() {
		if strings.HasPrefix(pad.Name(), prefix) {
			infos = append(infos, pad.Property(avpipe.PropMetadata))
		}
	}
	return infos
}

// AudioStreams returns the metadata of the audio streams.
func (p *Player) AudioStreams() []avpipe.Property { return p.streamInfo("audio") }

// VideoStreams returns the metadata of the video streams.
func (p *Player) VideoStreams() []avpipe.Property { return p.streamInfo("video") }

// --- control ---

// Play starts playback, building the pipeline on the first call after a
// stop, or resumes a paused player.
func (p *Player) Play() {
	switch p.State() {
	case avpipe.StateNull:
		p.load()
	case avpipe.StatePaused:
		p.mu.Lock()
		pipeline := p.pipeline
		p.mu.Unlock()
		if pipeline == nil {
			return
		}
		if err := pipeline.SetState(avpipe.StateRunning); err != nil {
			p.fail(avpipe.CodeOf(err), err.Error())
			return
		}
		p.setState(avpipe.StateRunning)
	}
}

// Pause suspends a running player.
func (p *Player) Pause() {
	if p.State() != avpipe.StateRunning {
		return
	}
	p.mu.Lock()
	pipeline := p.pipeline
	p.mu.Unlock()
	if pipeline == nil {
		return
	}
	if err := pipeline.SetState(avpipe.StatePaused); err != nil {
		p.fail(avpipe.CodeOf(err), err.Error())
		return
	}
	p.setState(avpipe.StatePaused)
}

// Stop tears the pipeline down; Play afterwards restarts from scratch.
func (p *Player) Stop() {
	p.mu.Lock()
	pipeline := p.pipeline
	p.pipeline = nil
	p.demuxer = nil
	p.audioSink = nil
	p.videoSink = nil
	p.loopsDone = 0
	p.mu.Unlock()
	if pipeline != nil {
		pipeline.Close()
	}
	p.setState(avpipe.StateNull)
}

// SetPosition seeks to an absolute position, in seconds. Only a running
// or paused player reacts.
func (p *Player) SetPosition(position float64) {
	state := p.State()
	if state != avpipe.StateRunning && state != avpipe.StatePaused {
		return
	}
	p.mu.Lock()
	pipeline := p.pipeline
	p.mu.Unlock()
	if pipeline != nil {
		pipeline.SendEvent(avpipe.NewSeekEvent(position))
	}
}

// --- internals ---

func (p *Player) setState(state avpipe.State) {
	p.mu.Lock()
	if p.state == state {
		p.mu.Unlock()
		return
	}
	p.state = state
	cb := p.stateCb
	p.mu.Unlock()
	if cb != nil {
		cb(state)
	}
}

func (p *Player) fail(code avpipe.Code, message string) {
	if p.errorCb != nil {
		p.errorCb(code, message)
	}
	p.Stop()
}

func (p *Player) load() {
	p.mu.Lock()
	url := p.url
	p.mu.Unlock()
	if url == "" {
		p.fail(avpipe.CodeInvalidArguments, "no source url")
		return
	}

	pipeline := avpipe.NewPipeline()
	pipeline.SetName("player")
	pipeline.SetEventCallback(p.translateEvent)

	demuxer := reisenmedia.NewDemuxer()
	demuxer.SetName("player/demuxer")
	demuxer.SetURL(url)
	p.mu.Lock()
	for key, value := range p.options {
		demuxer.SetOption(key, value)
	}
	renderer := p.renderer
	device := p.device
	p.pipeline = pipeline
	p.demuxer = demuxer
	p.mu.Unlock()

	if err := pipeline.AddElement(demuxer); err != nil {
		p.fail(avpipe.CodeOf(err), err.Error())
		return
	}
	// Bring the demuxer up so its stream pads exist before linking.
	if err := pipeline.SetState(avpipe.StateReady); err != nil {
		p.fail(avpipe.CodeOf(err), err.Error())
		return
	}
	if device != nil && p.HasAudio() {
		if err := p.buildAudioBranch(pipeline, demuxer, device); err != nil {
			p.fail(avpipe.CodeOf(err), err.Error())
			return
		}
	}
	if renderer != nil && p.HasVideo() {
		if err := p.buildVideoBranch(pipeline, demuxer, renderer); err != nil {
			p.fail(avpipe.CodeOf(err), err.Error())
			return
		}
	}
	if err := pipeline.SetState(avpipe.StateRunning); err != nil {
		p.fail(avpipe.CodeOf(err), err.Error())
		return
	}
	p.setState(avpipe.StateRunning)
}

func (p *Player) buildAudioBranch(pipeline avpipe.Pipeline, demuxer *reisenmedia.Demuxer, device elements.AudioDevice) error {
	decoder := demuxer.DecoderFor("audio0")
	if decoder == nil {
		return avpipe.NewError(avpipe.CodeNoStream, "no audio decoder")
	}
	queue := elements.NewQueue()
	queue.SetName("player/audioqueue")
	convert := elements.NewAudioConvert()
	sink := elements.NewAudioSink()
	sink.SetName("player/audiosink")
	if err := sink.SetDevice(device); err != nil {
		return err
	}
	for _, e := range []avpipe.Element{decoder, queue, convert, sink} {
		if err := pipeline.AddElement(e); err != nil {
			return err
		}
	}
	if err := avpipe.LinkPads(demuxer, "audio0", decoder, "sink"); err != nil {
		return err
	}
	if err := avpipe.LinkElements(decoder, queue, convert, sink); err != nil {
		return err
	}
	p.mu.Lock()
	sink.SetVolume(p.volume)
	sink.SetMuted(p.muted)
	p.audioSink = sink
	p.mu.Unlock()
	return nil
}

func (p *Player) buildVideoBranch(pipeline avpipe.Pipeline, demuxer *reisenmedia.Demuxer, renderer elements.Renderer) error {
	decoder := demuxer.DecoderFor("video0")
	if decoder == nil {
		return avpipe.NewError(avpipe.CodeNoStream, "no video decoder")
	}
	queue := elements.NewQueue()
	queue.SetName("player/videoqueue")
	convert := elements.NewVideoConvert()
	sink := elements.NewVideoSink()
	sink.SetName("player/videosink")
	if err := sink.SetRenderer(renderer); err != nil {
		return err
	}
	for _, e := range []avpipe.Element{decoder, queue, convert, sink} {
		if err := pipeline.AddElement(e); err != nil {
			return err
		}
	}
	if err := avpipe.LinkPads(demuxer, "video0", decoder, "sink"); err != nil {
		return err
	}
	if err := avpipe.LinkElements(decoder, queue, convert, sink); err != nil {
		return err
	}
	p.mu.Lock()
	p.videoSink = sink
	p.mu.Unlock()
	return nil
}

// translateEvent runs on the pipeline dispatch worker and turns bus
// traffic into the user-facing callbacks.
func (p *Player) translateEvent(ev avpipe.Event) {
	switch ev.Type() {
	case avpipe.EventClockUpdated:
		if clockEv, ok := ev.(*avpipe.ClockEvent); ok && p.positionCb != nil {
			p.positionCb(clockEv.Position)
		}
	case avpipe.EventErrorOccurred:
		if errEv, ok := ev.(*avpipe.ErrorEvent); ok && p.errorCb != nil {
			p.errorCb(errEv.Code, errEv.Message)
		}
	case avpipe.EventMediaEndOfFile:
		p.mu.Lock()
		loops := p.loops
		p.loopsDone++
		again := loops < 0 || p.loopsDone <= loops
		p.mu.Unlock()
		if again {
			p.SetPosition(0)
			return
		}
		// Tearing down joins the dispatch worker delivering this very
		// event, so it has to happen off-thread.
		go p.Stop()
	}
}
