package align

import (
	"context"
	"io"
	"path/filepath"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/syncqueue"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/radclust/cluster"
	"github.com/klauspost/compress/gzip"
	"v.io/x/lib/vlog"
)

// Sample names the cluster stream of one sample and the aligned stream
// to produce from it.
type Sample struct {
	Name string
	// In is the (optionally gzipped) unaligned cluster stream.
	In string
	// Out is the gzipped aligned cluster stream to write.
	Out string
}

type task struct {
	sample int
	chunk  int
	in     scratch
}

// sampleWriter reassembles one sample's aligned chunks in chunk order.
type sampleWriter struct {
	out   file.File
	gz    *gzip.Writer
	queue *syncqueue.OrderedQueue
	wg    sync.WaitGroup
	err   errors.Once
}

func (w *sampleWriter) drain() {
	defer w.wg.Done()
	for {
		v, ok, err := w.queue.Next()
		if err != nil {
			w.err.Set(err)
			return
		}
		if !ok {
			return
		}
		s := v.(scratch)
		err = s.read(func(r io.Reader) error {
			if _, err := io.Copy(w.gz, r); err != nil {
				return err
			}
			_, err := io.WriteString(w.gz, cluster.Separator)
			return err
		})
		s.remove()
		if err != nil {
			w.err.Set(err)
			w.queue.Close(err)
			return
		}
	}
}

// AlignSamples aligns every sample's cluster stream. Chunks from all
// samples share one pool of Opts.Parallelism workers. Each sample's
// output is the concatenation of its aligned chunks in chunk order, each
// chunk followed by cluster.Separator.
//
// The returned slice holds one entry per sample: nil if the sample was
// aligned, or the first error met while aligning it. A failed sample
// does not stop the others. Chunk files are removed in all cases; the
// output of a failed sample is removed.
func (a *Aligner) AlignSamples(ctx context.Context, samples []Sample) []error {
	var (
		errs    = make([]errors.Once, len(samples))
		writers = make([]*sampleWriter, len(samples))
		tasks   []task
		mu      sync.Mutex
		tmps    []scratch
	)
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range tmps {
			s.remove()
		}
	}()

	for i, s := range samples {
		dir := a.Opts.TmpDir
		if dir == "" {
			dir = filepath.Dir(s.Out)
		}
		chunks, err := split(ctx, s.In, dir, s.Name, a.Opts.ChunkSize, !a.Opts.NoCompressTmpFiles)
		tmps = append(tmps, chunks...)
		if err != nil {
			errs[i].Set(errors.E("sample", s.Name, err))
			continue
		}
		out, err := file.Create(ctx, s.Out)
		if err != nil {
			errs[i].Set(errors.E("sample", s.Name, err))
			continue
		}
		w := &sampleWriter{
			out:   out,
			gz:    gzip.NewWriter(out.Writer(ctx)),
			queue: syncqueue.NewOrderedQueue(len(chunks) + 1),
		}
		w.wg.Add(1)
		go w.drain()
		writers[i] = w
		for j, c := range chunks {
			tasks = append(tasks, task{sample: i, chunk: j, in: c})
		}
		log.Printf("%s: aligning %d chunks", s.Name, len(chunks))
	}

	_ = traverse.Limit(a.Opts.Parallelism).Each(len(tasks), func(k int) error {
		t := tasks[k]
		w := writers[t.sample]
		if errs[t.sample].Err() != nil {
			w.queue.Close(errs[t.sample].Err())
			return nil
		}
		vlog.VI(1).Infof("%s: chunk %d start", samples[t.sample].Name, t.chunk)
		out, err := a.alignChunk(ctx, t.in, filepath.Dir(t.in.path), samples[t.sample].Name)
		if out.path != "" {
			mu.Lock()
			tmps = append(tmps, out)
			mu.Unlock()
		}
		if err == nil {
			err = w.queue.Insert(t.chunk, out)
		}
		if err != nil {
			err = errors.E("sample", samples[t.sample].Name, "chunk", t.in.path, err)
			errs[t.sample].Set(err)
			w.queue.Close(err)
		}
		vlog.VI(1).Infof("%s: chunk %d done", samples[t.sample].Name, t.chunk)
		return nil
	})

	result := make([]error, len(samples))
	for i, w := range writers {
		if w != nil {
			w.queue.Close(nil)
			w.wg.Wait()
			errs[i].Set(w.err.Err())
			errs[i].Set(w.gz.Close())
			errs[i].Set(w.out.Close(ctx))
			if errs[i].Err() != nil {
				if err := file.Remove(ctx, samples[i].Out); err != nil {
					log.Error.Printf("remove %s: %v", samples[i].Out, err)
				}
			}
		}
		result[i] = errs[i].Err()
	}
	return result
}

// alignChunk aligns every cluster of the chunk file in and writes the
// result to a new scratch file in dir.
func (a *Aligner) alignChunk(ctx context.Context, in scratch, dir, prefix string) (scratch, error) {
	var clusters []cluster.Cluster
	err := in.read(func(r io.Reader) error {
		var err error
		clusters, err = cluster.Decode(r)
		return err
	})
	if err != nil {
		return scratch{}, err
	}
	for i := range clusters {
		if clusters[i], err = a.AlignCluster(ctx, &clusters[i]); err != nil {
			return scratch{}, err
		}
	}
	return createScratch(dir, prefix+"_out", in.compress, func(w io.Writer) error {
		return cluster.Encode(w, clusters)
	})
}
