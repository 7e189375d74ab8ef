package market

import (
	"errors"

	"github.com/jackiewangjingchun-cpu/wattcoin/models"
)

func asMarketError(err error, target **models.MarketError) bool {
	return errors.As(err, target)
}

func errClass(err error) models.ErrorClass {
	var me *models.MarketError
	if errors.As(err, &me) {
		return me.Class
	}
	return ""
}

func errReason(err error) string {
	var me *models.MarketError
	if errors.As(err, &me) {
		return me.Reason
	}
	return ""
}
