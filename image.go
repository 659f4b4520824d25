package scenedoc

import (
	"context"
	"image"

	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"
)

// ImageSource fetches and decodes a remote texture image by handle.
type ImageSource interface {
	FetchImage(ctx context.Context, handle string) (image.Image, error)
}

func (c *AssetCache) lookupImage(key StructuralHash) (*ImageInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	img, ok := c.images[key]
	return img, ok
}

// ResolveImage fetches, converts, and downscales the image behind handle at
// most once per handle. maxSize of 0 (or anything at or above 10000)
// disables the downscale ceiling.
func (c *AssetCache) ResolveImage(ctx context.Context, handle string, src ImageSource, maxSize int) (*ImageInfo, error) {
	key := handleKey("image", handle)
	if img, ok := c.lookupImage(key); ok {
		return img, nil
	}
	v, err, _ := c.flight.Do("image:"+handle, func() (any, error) {
		if img, ok := c.lookupImage(key); ok {
			return img, nil
		}
		c.mu.Lock()
		past := c.failed["image:"+handle]
		c.mu.Unlock()
		if past != nil {
			return nil, past
		}
		if src == nil {
			return nil, errors.Errorf("image %s is unresolved and no image source is configured", handle)
		}
		decoded, err := src.FetchImage(ctx, handle)
		if err != nil {
			err = errors.Wrapf(err, "fetch image %s", handle)
			c.rememberFailure("image:"+handle, err)
			return nil, err
		}
		rgba := fitRGBA(toRGBA(decoded), maxSize)
		info := &ImageInfo{
			Handle: handle,
			Width:  rgba.Bounds().Dx(),
			Height: rgba.Bounds().Dy(),
			Pixels: rgba.Pix,
			URI:    handle + ".png",
		}
		c.mu.Lock()
		c.images[key] = info
		c.mu.Unlock()
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ImageInfo), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Copy(rgba, image.Point{}, img, bounds, xdraw.Src, nil)
	return rgba
}

// fitRGBA downscales img so both axes fit within maxSize, preserving aspect
// ratio. Returns img unchanged when it already fits or the limit is off.
func fitRGBA(img *image.RGBA, maxSize int) *image.RGBA {
	if maxSize <= 0 || maxSize >= textureSizeUnlimited {
		return img
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w <= maxSize && h <= maxSize {
		return img
	}
	nw, nh := w, h
	if nw > nh {
		nh = nh * maxSize / nw
		nw = maxSize
	} else {
		nw = nw * maxSize / nh
		nh = maxSize
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// fitImageInfo applies the downscale ceiling to an already resolved image.
// Images without a pixel payload only have their recorded dimensions
// clamped; the external store is expected to hold the scaled pixels.
func fitImageInfo(info *ImageInfo, maxSize int) *ImageInfo {
	if maxSize <= 0 || maxSize >= textureSizeUnlimited {
		return info
	}
	if info.Width <= maxSize && info.Height <= maxSize {
		return info
	}
	if info.Pixels == nil {
		out := *info
		if out.Width > maxSize {
			out.Width = maxSize
		}
		if out.Height > maxSize {
			out.Height = maxSize
		}
		return &out
	}
	src := &image.RGBA{
		Pix:    info.Pixels,
		Stride: 4 * info.Width,
		Rect:   image.Rect(0, 0, info.Width, info.Height),
	}
	scaled := fitRGBA(src, maxSize)
	return &ImageInfo{
		Handle: info.Handle,
		Width:  scaled.Bounds().Dx(),
		Height: scaled.Bounds().Dy(),
		Pixels: scaled.Pix,
		URI:    info.URI,
	}
}
