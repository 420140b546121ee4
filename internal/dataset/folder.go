package dataset

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// DefaultExtensions are the file extensions ImageFolder picks up, compared
// case-insensitively.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp"}

// ImageRecord is one raw image and its class label.
type ImageRecord struct {
	Path  string
	Label int
	Data  []byte
}

// RecordSource is a random-access collection of image records.
type RecordSource interface {
	Len() int
	Record(index int) (ImageRecord, error)
	NumClasses() int
}

// Iterate lazily yields the records of src that belong to plan, in source
// order. Iteration stops after the first error.
func Iterate(src RecordSource, plan ShardingPlan) iter.Seq2[ImageRecord, error] {
	return func(yield func(ImageRecord, error) bool) {
		for _, i := range plan.Select(src.Len()) {
			rec, err := src.Record(i)
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// ImageFolder is a RecordSource over a directory where each immediate
// subdirectory is one class. Classes are labelled 0..k-1 in name order and
// files are listed in name order, so indices are stable across runs.
type ImageFolder struct {
	root       string
	paths      []string
	labels     []int
	classNames []string
}

// NewImageFolder scans root. A nil extensions list means DefaultExtensions.
func NewImageFolder(root string, extensions []string) (*ImageFolder, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list classes: %v", ErrInvalidPath, err)
	}

	folder := &ImageFolder{root: root}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		classPath := filepath.Join(root, entry.Name())
		if st, err := os.Stat(classPath); err != nil || !st.IsDir() {
			continue
		}

		label := len(folder.classNames)
		folder.classNames = append(folder.classNames, entry.Name())

		files, err := os.ReadDir(classPath)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to list %s: %v", ErrInvalidPath, classPath, err)
		}
		for _, f := range files {
			if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
				continue
			}
			if !allowed[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			folder.paths = append(folder.paths, filepath.Join(classPath, f.Name()))
			folder.labels = append(folder.labels, label)
		}
	}

	if len(folder.classNames) == 0 {
		return nil, fmt.Errorf("%w: no class subdirectories in %s", ErrInvalidPath, root)
	}
	if len(folder.paths) == 0 {
		return nil, fmt.Errorf("%w: no images found in %s", ErrInvalidPath, root)
	}
	return folder, nil
}

// Len returns the number of images.
func (f *ImageFolder) Len() int {
	return len(f.paths)
}

// Record reads the image at index from disk.
func (f *ImageFolder) Record(index int) (ImageRecord, error) {
	if index < 0 || index >= len(f.paths) {
		return ImageRecord{}, fmt.Errorf("index %d out of range [0, %d)", index, len(f.paths))
	}
	data, err := os.ReadFile(f.paths[index])
	if err != nil {
		return ImageRecord{}, fmt.Errorf("failed to read %s: %w", f.paths[index], err)
	}
	return ImageRecord{Path: f.paths[index], Label: f.labels[index], Data: data}, nil
}

// NumClasses returns the number of class subdirectories.
func (f *ImageFolder) NumClasses() int {
	return len(f.classNames)
}

// ClassNames returns the class names in label order.
func (f *ImageFolder) ClassNames() []string {
	return f.classNames
}

// ClassDistribution returns the number of images per class name.
func (f *ImageFolder) ClassDistribution() map[string]int {
	dist := make(map[string]int, len(f.classNames))
	for _, label := range f.labels {
		dist[f.classNames[label]]++
	}
	return dist
}

func (f *ImageFolder) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ImageFolder %s: %d images, %d classes\n", f.root, len(f.paths), len(f.classNames))
	dist := f.ClassDistribution()
	for label, name := range f.classNames {
		fmt.Fprintf(&sb, "  [%d] %s: %d images\n", label, name, dist[name])
	}
	return sb.String()
}
