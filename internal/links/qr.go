package links

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Variant is an image transform tried when the original image has no
// readable QR code.
type Variant struct {
	Name  string
	Apply func(image.Image) image.Image
}

// DefaultVariants boosts contrast, boosts brightness, then inverts.
func DefaultVariants() []Variant {
	return []Variant{
		{Name: "contrast", Apply: func(img image.Image) image.Image { return imaging.AdjustContrast(img, 50) }},
		{Name: "brightness", Apply: func(img image.Image) image.Image { return imaging.AdjustBrightness(img, 30) }},
		{Name: "invert", Apply: func(img image.Image) image.Image { return imaging.Invert(img) }},
	}
}

// QRStrategy decodes QR codes and keeps the payloads that are web URLs.
type QRStrategy struct {
	variants []Variant
}

// NewQRStrategy creates a QRStrategy with the default variants.
func NewQRStrategy() *QRStrategy {
	return &QRStrategy{variants: DefaultVariants()}
}

// Name implements Strategy.
func (s *QRStrategy) Name() string { return "qr" }

// Extract implements Strategy.
func (s *QRStrategy) Extract(ctx context.Context, in *Input) ([]string, error) {
	if in.Grid == nil {
		return nil, nil
	}

	base := in.Grid.Image()
	text, err := decodeQR(base)
	if err != nil {
		return nil, err
	}
	for _, v := range s.variants {
		if text != "" {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if text, err = decodeQR(v.Apply(base)); err != nil {
			return nil, fmt.Errorf("variant %s: %w", v.Name, err)
		}
	}

	if text == "" || !IsWebURL(text) {
		return nil, nil
	}
	return []string{text}, nil
}

// decodeQR returns the payload of a QR code in img, or "" if none is found.
func decodeQR(img image.Image) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("qr decoder panic: %v", r)
		}
	}()

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("failed to binarize image: %w", err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		// NotFound, checksum and format errors all mean no readable code.
		return "", nil
	}
	return result.GetText(), nil
}

var _ Strategy = (*QRStrategy)(nil)
