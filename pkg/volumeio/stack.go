package volumeio

import (
	"fmt"
	"os"

	tiffstack "github.com/chai2010/tiff"

	"empiricalpsf/internal/models"
)

// LoadTiffStack loads a multi-page TIFF with one z-slice per page. Sub-images
// attached to a page, such as thumbnails, are ignored.
func LoadTiffStack(path string) (*models.Volume, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	pages, _, err := tiffstack.DecodeAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode TIFF stack %s: %w", path, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%s: TIFF stack has no pages", path)
	}

	var vol *models.Volume
	for z, page := range pages {
		if len(page) == 0 || page[0] == nil {
			return nil, fmt.Errorf("%s: page %d has no image", path, z)
		}
		bounds := page[0].Bounds()
		if vol == nil {
			vol = models.NewVolume(bounds.Dy(), bounds.Dx(), len(pages))
		} else if bounds.Dy() != vol.Rows || bounds.Dx() != vol.Cols {
			return nil, fmt.Errorf("%s: page %d is %dx%d, expected %dx%d",
				path, z, bounds.Dy(), bounds.Dx(), vol.Rows, vol.Cols)
		}
		copy(vol.Plane(z), grayValues(page[0]))
	}
	return vol, nil
}
