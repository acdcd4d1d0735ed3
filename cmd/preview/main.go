package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"order_notifier/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults apply when empty)")
	out := flag.String("out", "confirmation.html", "where to write the rendered HTML")
	png := flag.String("png", "", "also screenshot the email to this PNG file")
	fulfillment := flag.String("fulfillment", "pickup", "pickup, delivery or unspecified")
	email := flag.String("email", "customer@example.com", "recipient shown in the sample")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	msg := render(cfg.Business, *fulfillment, *email)
	if err := os.WriteFile(*out, []byte(msg.BodyHTML), 0o644); err != nil {
		log.Fatalf("write html: %v", err)
	}
	log.Printf("subject: %s", msg.Subject)
	log.Printf("wrote %s", *out)

	if *png == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	img, err := screenshot(ctx, msg.BodyHTML)
	if err != nil {
		log.Fatalf("screenshot: %v", err)
	}
	if err := os.WriteFile(*png, img, 0o644); err != nil {
		log.Fatalf("write png: %v", err)
	}
	log.Printf("wrote %s", *png)
}
