package utils

// DownloadEntry is one line of a batch file.
type DownloadEntry struct {
	URL      string `yaml:"link"`
	Category string `yaml:"category,omitempty"`
	Dir      string `yaml:"dir,omitempty"`
}
