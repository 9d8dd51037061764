package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/park285/tessu-bridge/internal/restclient"
	"github.com/park285/tessu-bridge/internal/voicelink"
	"github.com/park285/tessu-bridge/internal/wsfeed"
)

func main() {
	_ = godotenv.Load()
	baseURL := os.Getenv("VOICE_BASE_URL")
	wsURL := os.Getenv("VOICE_WS_URL")
	if baseURL == "" {
		log.Fatal("VOICE_BASE_URL is required")
	}

	client := voicelink.NewClient(restclient.New(baseURL, restclient.WithTimeout(5*time.Second)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if info, err := client.PluginInfo(ctx); err != nil {
		log.Printf("/plugin error: %v", err)
	} else {
		log.Printf("/plugin ok: installed=%v version=%d", info.Installed, info.Version)
	}
	if users, err := client.Clients(ctx); err != nil {
		log.Printf("/clients error: %v", err)
	} else {
		log.Printf("/clients ok: %d users", len(users))
		for _, u := range users {
			fmt.Printf("  #%d %q game=%q talking=%v\n", u.ClientID, u.Nickname, u.GameNickname, u.Talking)
		}
	}

	if wsURL == "" {
		log.Println("VOICE_WS_URL not set; skipping WS check")
		return
	}

	feed := wsfeed.New(wsURL, wsfeed.WithReconnect(0))
	feed.OnStateChange(func(s wsfeed.State) { log.Printf("WS state: %s", s) })
	roster := voicelink.NewRoster()
	feed.OnMessage(func(e wsfeed.Envelope) {
		ch := roster.Apply(e)
		fmt.Printf("WS event type=%s change=%d client=%d nick=%q\n", e.Type, ch.Kind, ch.User.ClientID, ch.User.Nickname)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := feed.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}

	time.Sleep(10 * time.Second)
	_ = feed.Close(context.Background())
}
