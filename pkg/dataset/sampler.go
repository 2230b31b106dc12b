// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/gomlx/ganprep/pkg/npy"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// ErrSamplerClosed is returned by Sampler.Yield after Sampler.Close.
var ErrSamplerClosed = errors.New("sampler closed")

// Batch of images and labels yielded by a Sampler.
type Batch struct {
	// Images shaped `[batchSize, size, size, 3]`, with values in [-1, 1] (see Preprocess).
	Images []float32

	// Labels shaped `[batchSize]`.
	Labels []int32
}

// Sampler yields an endless sequence of batches of images drawn uniformly at random, with
// replacement, from a dataset archive created with Create.
type Sampler struct {
	archivePath string
	batchSize   int
	size        int
	numImages   int
	numClasses  int
	features    []uint8
	labels      []int32
	mapped      *npy.MappedNpz

	// Options.
	seed        uint64
	useMmap     bool
	numPrefetch int

	// muRng protects rng, used when not prefetching.
	muRng sync.Mutex
	rng   *rand.Rand

	// Prefetching.
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	batches chan *Batch
}

// SamplerOption configures NewSampler.
type SamplerOption func(s *Sampler)

// WithSeed sets the seed of the random sampling. By default, a random seed is used.
func WithSeed(seed uint64) SamplerOption {
	return func(s *Sampler) { s.seed = seed }
}

// WithMemoryMap memory-maps the archive instead of reading it into memory.
// It requires an uncompressed archive (npy.NoCompression).
func WithMemoryMap() SamplerOption {
	return func(s *Sampler) { s.useMmap = true }
}

// WithPrefetch prepares batches in the background with numWorkers goroutines, keeping up to
// numWorkers batches ready. With prefetching the sequence of batches is not reproducible, even
// with a fixed seed.
func WithPrefetch(numWorkers int) SamplerOption {
	return func(s *Sampler) { s.numPrefetch = numWorkers }
}

// NewSampler opens the dataset archive at archivePath and returns a Sampler of batches of batchSize.
// Sampler.Close must be called when done.
func NewSampler(archivePath string, batchSize int, options ...SamplerOption) (*Sampler, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("invalid batch size %d", batchSize)
	}
	s := &Sampler{archivePath: archivePath, batchSize: batchSize, seed: rand.Uint64()}
	for _, option := range options {
		option(s)
	}

	var arrays map[string]*npy.Array
	var err error
	if s.useMmap {
		s.mapped, err = npy.MapNpz(archivePath)
		if err != nil {
			return nil, err
		}
		arrays = s.mapped.Arrays
	} else {
		arrays, err = npy.ReadNpz(archivePath)
		if err != nil {
			return nil, err
		}
	}
	features, labels, err := splitArrays(archivePath, arrays)
	if err == nil && len(labels) == 0 {
		err = errors.Errorf("dataset %q is empty", archivePath)
	}
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.features, s.labels = features.Data, labels
	s.numImages, s.size = features.Shape[0], features.Shape[1]
	for _, label := range labels {
		s.numClasses = max(s.numClasses, int(label)+1)
	}
	s.rng = rand.New(rand.NewPCG(s.seed, 0))
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if s.numPrefetch > 0 {
		s.startPrefetch()
	}
	klog.V(1).Infof("Sampler over %q: %d images of %dx%d, %d classes, batch size %d",
		archivePath, s.numImages, s.size, s.size, s.numClasses, batchSize)
	return s, nil
}

// NumClasses is the number of classes in the dataset: the largest label plus one.
func (s *Sampler) NumClasses() int { return s.numClasses }

// ImageSize is the side of the square images.
func (s *Sampler) ImageSize() int { return s.size }

// Len is the number of images in the dataset.
func (s *Sampler) Len() int { return s.numImages }

// BatchSize of the batches yielded.
func (s *Sampler) BatchSize() int { return s.batchSize }

// imageBytes is the number of bytes per image.
func (s *Sampler) imageBytes() int { return s.size * s.size * NumChannels }

// sampleRaw draws a batch using rng.
func (s *Sampler) sampleRaw(rng *rand.Rand) (images []uint8, labels []int32) {
	imageBytes := s.imageBytes()
	images = make([]uint8, s.batchSize*imageBytes)
	labels = make([]int32, s.batchSize)
	for ii := range s.batchSize {
		idx := rng.IntN(s.numImages)
		copy(images[ii*imageBytes:(ii+1)*imageBytes], s.features[idx*imageBytes:(idx+1)*imageBytes])
		labels[ii] = s.labels[idx]
	}
	return
}

// YieldRaw returns a random batch of images (shaped `[batchSize, size, size, 3]`) and labels,
// without preprocessing. It never uses the prefetched batches.
func (s *Sampler) YieldRaw() (images []uint8, labels []int32, err error) {
	if s.ctx.Err() != nil {
		return nil, nil, ErrSamplerClosed
	}
	s.muRng.Lock()
	defer s.muRng.Unlock()
	images, labels = s.sampleRaw(s.rng)
	return
}

// Yield returns a random batch with images preprocessed to [-1, 1].
func (s *Sampler) Yield() (*Batch, error) {
	if s.ctx.Err() != nil {
		return nil, ErrSamplerClosed
	}
	if s.batches == nil {
		images, labels, err := s.YieldRaw()
		if err != nil {
			return nil, err
		}
		return &Batch{Images: Preprocess(images), Labels: labels}, nil
	}
	select {
	case batch := <-s.batches:
		return batch, nil
	case <-s.ctx.Done():
		return nil, ErrSamplerClosed
	}
}

// startPrefetch starts the goroutines feeding s.batches.
func (s *Sampler) startPrefetch() {
	s.batches = make(chan *Batch, s.numPrefetch)
	s.group, _ = errgroup.WithContext(s.ctx)
	for worker := range s.numPrefetch {
		rng := rand.New(rand.NewPCG(s.seed, uint64(worker)+1))
		s.group.Go(func() error {
			for {
				images, labels := s.sampleRaw(rng)
				batch := &Batch{Images: Preprocess(images), Labels: labels}
				select {
				case s.batches <- batch:
				case <-s.ctx.Done():
					return nil
				}
			}
		})
	}
}

// Close stops prefetching and releases the archive. It is safe to call more than once.
func (s *Sampler) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.group != nil {
		_ = s.group.Wait()
	}
	s.features, s.labels = nil, nil
	if s.mapped != nil {
		err := s.mapped.Close()
		s.mapped = nil
		return err
	}
	return nil
}
