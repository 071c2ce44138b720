// streamload/sink/blob/driver.go
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// URLs
	_ "gocloud.dev/blob/gcsblob"  // gs:// URLs
	_ "gocloud.dev/blob/s3blob"   // s3:// URLs

	"streamload/sink"
)

/* ────────── public YAML config ────────── */
type Config struct {
	URL         string `yaml:"url"`         // bucket URL: file:///dir, s3://bucket, gs://bucket
	Key         string `yaml:"key"`         // object key for the finished batch
	Compression string `yaml:"compression"` // "" | "zstd"
}

/* ────────── driver ────────── */

// driver buffers the batch in memory and uploads it as one object on
// Finish. Cancel discards the buffer without touching the bucket, so a
// failed attempt leaves no partial object behind.
type driver struct {
	cfg Config

	mu   sync.Mutex
	buf  bytes.Buffer
	zw   *zstd.Encoder // non-nil when compressing
	done bool
}

/* ────────── sink.Pipe ────────── */
func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("blob-sink: expected Config, got %T", raw)
	}
	if c.URL == "" || c.Key == "" {
		return fmt.Errorf("blob-sink: url and key are required")
	}
	switch c.Compression {
	case "", "zstd":
	default:
		return fmt.Errorf("blob-sink: unsupported compression %q", c.Compression)
	}
	d.cfg = c
	if c.Compression == "zstd" {
		zw, err := zstd.NewWriter(&d.buf)
		if err != nil {
			return fmt.Errorf("blob-sink: zstd writer: %w", err)
		}
		d.zw = zw
	}
	return nil
}

func (d *driver) Append(payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return fmt.Errorf("blob-sink: append after finish/cancel")
	}
	var w io.Writer = &d.buf
	if d.zw != nil {
		w = d.zw
	}
	_, err := w.Write(payload)
	return err
}

func (d *driver) Finish() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return fmt.Errorf("blob-sink: already finished")
	}
	d.done = true
	if d.zw != nil {
		if err := d.zw.Close(); err != nil {
			return fmt.Errorf("blob-sink: flush zstd: %w", err)
		}
	}

	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, d.cfg.URL)
	if err != nil {
		return fmt.Errorf("blob-sink: open bucket %s: %w", d.cfg.URL, err)
	}
	defer bucket.Close()

	w, err := bucket.NewWriter(ctx, d.cfg.Key, nil)
	if err != nil {
		return fmt.Errorf("blob-sink: create writer for %s: %w", d.cfg.Key, err)
	}
	if _, err := w.Write(d.buf.Bytes()); err != nil {
		w.Close()
		return fmt.Errorf("blob-sink: write %s: %w", d.cfg.Key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("blob-sink: close writer for %s: %w", d.cfg.Key, err)
	}
	d.buf.Reset()
	return nil
}

func (d *driver) Cancel(reason error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.done = true
	if d.zw != nil {
		_ = d.zw.Close()
	}
	d.buf.Reset()
	return nil
}

/* ────────── auto-register ────────── */
func init() {
	sink.Register("blob", func() sink.Pipe { return &driver{} })
}
