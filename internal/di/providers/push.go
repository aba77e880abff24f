package providers

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"github.com/samber/do/v2"

	"github.com/tellmeastory/zine-server/internal/config"
	"github.com/tellmeastory/zine-server/internal/logger"
	"github.com/tellmeastory/zine-server/internal/push"
	"github.com/tellmeastory/zine-server/internal/push/fcm"
)

// PushGateway is the configured push backend. Broker is set in local mode,
// where notifications are delivered in process.
type PushGateway struct {
	Messenger push.Messenger
	Broker    *push.LocalBroker
}

// ProvidePushGateway provides FCM or the in-process broker per cfg.Push.Mode.
func ProvidePushGateway(i do.Injector) (*PushGateway, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Push.Mode == "fcm" {
		app := do.MustInvoke[*firebase.App](i)
		client, err := fcm.New(context.Background(), app, log.Logger)
		if err != nil {
			return nil, err
		}
		log.Info("Push messaging via FCM")
		return &PushGateway{Messenger: client}, nil
	}

	broker := push.NewLocalBroker(log.Logger)
	log.Info("Push messaging via local broker")
	return &PushGateway{Messenger: broker, Broker: broker}, nil
}
