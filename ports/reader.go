package ports

import (
	"pmuplace/domain/dataset"
)

// DatasetReader loads a numeric table from persistent storage
type DatasetReader interface {
	ReadTable(path string) (*dataset.Table, error)
}
