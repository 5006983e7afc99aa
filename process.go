package soundscape

// Process renders len(dst)/2 interleaved stereo frames. Scheduled actions
// land on their exact frame: a control block is cut short so the next
// record starts a new block. A stopped engine writes silence.
func (e *Engine) Process(dst []float32) {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()

	rt := e.rt.Load()
	if rt == nil || !e.running.Load() {
		clear(dst)
		return
	}
	ring := rt.sched.Ring()
	frames := len(dst) / 2
	now := e.timeline.Load()
	for pos := 0; pos < frames; {
		n := min(frames-pos, e.cfg.blockSize)
		for {
			rec, ok := ring.Peek()
			if !ok {
				break
			}
			if rec.Frame > now {
				if d := rec.Frame - now; d < int64(n) {
					n = int(d)
				}
				break
			}
			rt.applyRecord(rec)
			ring.Pop()
		}

		rt.mods.Step(n)
		l, r := rt.graph.Render(n)
		out := dst[pos*2 : (pos+n)*2]
		for i := range n {
			out[2*i] = float32(clamp(l[i]))
			out[2*i+1] = float32(clamp(r[i]))
		}
		pos += n
		now += int64(n)
	}
	if len(dst)%2 == 1 {
		dst[len(dst)-1] = 0
	}
	e.timeline.Store(now)
	if e.cfg.sampleTap != nil {
		e.cfg.sampleTap(dst)
	}
}

func clamp(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	case v != v:
		return 0
	}
	return v
}
