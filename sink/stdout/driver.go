// streamload/sink/stdout/driver.go
package stdout

import (
	"bytes"
	"fmt"
	"sync"

	"streamload/sink"
)

/* ────────── public YAML config ────────── */
type Config struct {
	PrintRows bool `yaml:"print_rows"`      // echo the batch on finish
	MaxBytes  int  `yaml:"value_max_bytes"` // truncate echoed batch, 0 = all
}

/* ────────── driver ────────── */

// driver buffers one attempt's batch and prints it on Finish. Meant for
// debugging a job file before pointing it at a real pipe.
type driver struct {
	cfg Config

	mu   sync.Mutex
	buf  bytes.Buffer
	rows int64
	done bool
}

/* ────────── sink.Pipe ────────── */
func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	d.cfg = c
	return nil
}

func (d *driver) Append(payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return fmt.Errorf("stdout-sink: append after finish/cancel")
	}
	d.buf.Write(payload)
	d.rows++
	return nil
}

func (d *driver) Finish() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.done = true

	if d.cfg.PrintRows {
		out := d.buf.Bytes()
		if d.cfg.MaxBytes > 0 && len(out) > d.cfg.MaxBytes {
			out = out[:d.cfg.MaxBytes]
		}
		fmt.Printf("%s", out)
	}
	fmt.Printf("[stdout-sink] batch finished: rows=%d bytes=%d\n", d.rows, d.buf.Len())
	d.buf.Reset()
	return nil
}

func (d *driver) Cancel(reason error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.done = true
	fmt.Printf("[stdout-sink] batch cancelled: rows=%d bytes=%d reason=%v\n", d.rows, d.buf.Len(), reason)
	d.buf.Reset()
	return nil
}

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Pipe { return &driver{} })
}
