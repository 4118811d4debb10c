package model

// ExtractResult describes one extraction run. Files holds the final paths,
// after any rename.
type ExtractResult struct {
	Dir       string
	Timestamp string
	Files     []string
	Renamed   int
	Failed    int
}
