package calendar

import (
	"errors"
	"net"

	"google.golang.org/api/googleapi"
)

var (
	// ErrFeedTransient фид временно недоступен, имеет смысл повторить с бэкоффом
	ErrFeedTransient = errors.New("calendar feed temporarily unavailable")

	// ErrFeedPermanent ошибка фида, повтор не поможет
	ErrFeedPermanent = errors.New("calendar feed request rejected")
)

// classifyFeedError делит ошибки API на временные (429, 5xx, сеть) и постоянные.
func classifyFeedError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return errors.Join(ErrFeedTransient, err)
		}
		return errors.Join(ErrFeedPermanent, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Join(ErrFeedTransient, err)
	}

	return errors.Join(ErrFeedPermanent, err)
}
