package metrics

import (
	"context"
	"time"
)

func recordMetricsLoop(ctx context.Context, api StateReader) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			recordWalletStateInfo(ctx, api)
		case <-ctx.Done():
			log.Infof("context done, stop record metrics")
			return
		}
	}
}

func recordWalletStateInfo(ctx context.Context, api StateReader) {
	view, err := api.GetState(ctx)
	if err != nil {
		log.Warnf("failed to read wallet state %v", err)
		return
	}

	var siteNum, sessionNum int64
	for _, site := range view.ConnectedSites {
		if site.Connected {
			siteNum++
		}
	}
	for _, sess := range view.Sessions {
		if sess.Connected {
			sessionNum++
		}
	}

	SiteNum.Set(ctx, siteNum)
	SessionNum.Set(ctx, sessionNum)
	PendingNum.Set(ctx, int64(view.PendingCount))
}
