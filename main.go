package main

import (
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-lunos/bridge"
	"go-lunos/config"
	"go-lunos/logger"
	"go-lunos/routes"
)

// reconcileInterval paces the relay state polls. The LUNOS controller
// has no feedback channel, so this is how often externally flipped
// switches are noticed.
const reconcileInterval = 30 * time.Second

func main() {
	cfg, err := config.LoadConfiguration("lunos.yaml")
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error loading configuration", "err", err)
		return
	}

	log := logger.Get(cfg.LogLevel)

	b, err := bridge.New(cfg, log)
	if err != nil {
		log.Fatalw("error setting up bridge", "err", err)
		return
	}

	mqttOpts := cfg.Mqtt.ClientOptions()
	// Configure subscriptions in the ConnectHandler to make sure they are
	// re-established after a reconnect.
	mqttOpts.SetOnConnectHandler(func(client mqtt.Client) {
		b.Subscribe(client)
	})
	mqttOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnw("MQTT connection lost", "err", err)
	})

	mqttClient := mqtt.NewClient(mqttOpts)
	if t := mqttClient.Connect(); t.Wait() && t.Error() != nil {
		log.Fatalw("MQTT connection error", "err", t.Error())
		return
	}

	if err := b.RegisterFans(mqttClient); err != nil {
		log.Fatalw("error registering fans", "err", err)
		return
	}

	go loopSafely(func() {
		b.PublishStates(mqttClient)

		time.Sleep(time.Second)
	})

	go loopSafely(func() {
		b.ReconcileFans(mqttClient)

		time.Sleep(reconcileInterval)
	})

	router := httprouter.New()
	router.GET("/state", routes.State(b))
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	go loopSafely(func() {
		http.ListenAndServe(":"+cfg.HTTPPort, router)
	})

	select {}
}
