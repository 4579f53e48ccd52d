package xconf

// Options control config loading.
type Options struct {
	// Delim separates key path segments, "." by default.
	Delim string
	// Tag is the struct tag read by Unmarshal, "koanf" by default.
	Tag string
}

// Option customizes Options.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{Delim: ".", Tag: "koanf"}
}

// WithDelim sets the key path delimiter.
func WithDelim(delim string) Option {
	return func(o *Options) {
		if delim != "" {
			o.Delim = delim
		}
	}
}

// WithTag sets the struct tag used by Unmarshal.
func WithTag(tag string) Option {
	return func(o *Options) {
		if tag != "" {
			o.Tag = tag
		}
	}
}
