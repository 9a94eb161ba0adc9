package sentiment

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/elonfeng/buzzradar/pkg/buzz"
)

// Fallback consults Secondary whenever Primary fails.
type Fallback struct {
	Primary   buzz.Classifier
	Secondary buzz.Classifier
	Log       logrus.FieldLogger
}

// Classify implements buzz.Classifier.
func (f *Fallback) Classify(ctx context.Context, text string) (float64, error) {
	p, err := f.Primary.Classify(ctx, text)
	if err == nil {
		return p, nil
	}
	if f.Log != nil {
		f.Log.WithError(err).Debug("primary classifier failed, using fallback")
	}
	return f.Secondary.Classify(ctx, text)
}
