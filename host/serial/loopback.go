package serial

import "io"

// loopbackPort is one end of an in-memory full-duplex link.
type loopbackPort struct {
	r *io.PipeReader
	w *io.PipeWriter
}

// Loopback returns two connected Ports: bytes written to one are read
// from the other. Used by transport and executor tests in place of
// hardware.
func Loopback() (Port, Port) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a := &loopbackPort{r: ar, w: aw}
	b := &loopbackPort{r: br, w: bw}
	return a, b
}

func (p *loopbackPort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *loopbackPort) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

func (p *loopbackPort) Close() error {
	p.r.Close()
	return p.w.Close()
}

func (p *loopbackPort) Flush() error {
	return nil
}
