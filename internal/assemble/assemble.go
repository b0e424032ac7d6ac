package assemble

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/schollz/progressbar/v3"

	"dashdl/internal/logger"
	"dashdl/internal/media"
)

// Assembler concatenates a stream's downloaded segment files into the
// stream's single output file.
type Assembler struct {
	logger logger.Logger

	// Aggressive deletes each segment file immediately after its bytes
	// have been copied, instead of leaving deletion to the bulk cleanup
	// phase. The concatenated output is identical either way.
	Aggressive bool
	// Silent suppresses the progress bar.
	Silent bool
}

// New creates an assembler.
func New(log logger.Logger) *Assembler {
	return &Assembler{logger: log}
}

// Assemble orders the stream's segment files and stream-copies them
// into the stream's output path, replacing any pre-existing file.
func (a *Assembler) Assemble(stream media.Stream) error {
	ordered, err := Order(stream.SegmentPaths())
	if err != nil {
		return err
	}

	if err := os.Remove(stream.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale output %s: %w", stream.Path(), err)
	}

	out, err := os.Create(stream.Path())
	if err != nil {
		return fmt.Errorf("creating %s: %w", stream.Path(), err)
	}
	defer out.Close()

	rep := stream.Representation()
	bar := progressbar.NewOptions(len(ordered),
		progressbar.OptionSetDescription(fmt.Sprintf("%s assemble", rep.Type)),
		progressbar.OptionSetVisibility(!a.Silent),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	for _, path := range ordered {
		if err := copyInto(out, path); err != nil {
			return err
		}
		if a.Aggressive {
			if err := os.Remove(path); err != nil {
				a.logger.Warnf("removing assembled segment %s: %v", path, err)
			}
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	if err := out.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", stream.Path(), err)
	}
	a.logger.Debugf("assembled %d segments into %s", len(ordered), stream.Path())
	return nil
}

// Order sorts segment paths for assembly: the initialization segment
// first, then strictly ascending by the numeric index embedded in the
// filename. Indices are unbounded in digit count, so a lexical sort
// would interleave 10 between 1 and 2.
//
// The result is invariant under the input ordering.
func Order(paths []string) ([]string, error) {
	type entry struct {
		path  string
		index int
	}
	entries := make([]entry, 0, len(paths))
	haveInit := false
	for _, path := range paths {
		index, ok := media.ParseSegmentIndex(path)
		if !ok {
			return nil, fmt.Errorf("segment path %q does not follow the naming convention", path)
		}
		if index == media.InitSegment {
			if haveInit {
				return nil, fmt.Errorf("multiple initialization segments in %q", path)
			}
			haveInit = true
		}
		entries = append(entries, entry{path: path, index: index})
	}
	if !haveInit {
		return nil, fmt.Errorf("initialization segment missing from segment set")
	}

	// InitSegment sorts below every data index.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].index < entries[j].index
	})

	ordered := make([]string, len(entries))
	for i, e := range entries {
		ordered[i] = e.path
	}
	return ordered, nil
}

func copyInto(out *os.File, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening segment %s: %w", path, err)
	}
	defer in.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying segment %s: %w", path, err)
	}
	return nil
}
