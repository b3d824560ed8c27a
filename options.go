package bigfile

// CreateOption configures a block creation call.
type CreateOption func(*createConfig)

type createConfig struct {
	counts []int64
}

// WithCounts supplies an explicit per-file record count vector instead of
// letting the engine distribute size evenly across Nfile physical files.
// CollectiveFile.CreateBlock passes its options through to File.Create;
// CreateFromArray does not use WithCounts.
func WithCounts(counts []int64) CreateOption {
	return func(c *createConfig) {
		c.counts = append([]int64(nil), counts...)
	}
}

func applyCreateOptions(opts []CreateOption) createConfig {
	var c createConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
