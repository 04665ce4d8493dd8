package audio

// Framer reassembles an arbitrary-sized stream of little-endian float32
// PCM bytes into fixed FrameSamples-sized Frames, carrying over any
// partial tail between calls. Clients are not required to send
// frame-aligned websocket messages.
type Framer struct {
	carry []float32
	seq   uint64
}

// NewFramer creates an empty framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Push appends raw float32 PCM bytes and returns every complete frame
// that can be formed from the buffered samples, in order.
func (f *Framer) Push(data []byte) []Frame {
	samples := DecodeFloat32LE(data)
	f.carry = append(f.carry, samples...)

	var frames []Frame
	for len(f.carry) >= FrameSamples {
		var frame Frame
		copy(frame.Samples[:], f.carry[:FrameSamples])
		frame.Sequence = f.seq
		f.seq++
		frames = append(frames, frame)
		f.carry = f.carry[FrameSamples:]
	}
	return frames
}

// Pending reports how many samples are buffered waiting for the rest of
// their frame.
func (f *Framer) Pending() int {
	return len(f.carry)
}

// Reset clears any buffered partial frame and restarts sequencing.
func (f *Framer) Reset() {
	f.carry = nil
	f.seq = 0
}
