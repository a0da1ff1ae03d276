// Command cairovnc-demo runs a small animated surface behind a cairo-vnc
// server, the same shape as the Python project's example_push.py: a
// background animation loop driving the surface while pointer/key events
// pulled from the server are logged.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"os"
	"time"

	cairovnc "github.com/gerph/cairo-vnc"
)

const width, height = 200, 200

func main() {
	addr := flag.String("addr", "localhost", "listen host")
	port := flag.Int("port", 5902, "listen port")
	password := flag.String("password", "", "full-control VNC Authentication password (empty disables auth)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	surface := cairovnc.NewRGBASurface(width, height)

	srv := cairovnc.NewServer(cairovnc.ServerOptions{
		Host:         *addr,
		Port:         *port,
		Password:     *password,
		DisplayName:  "cairo-vnc demo",
		MaxFramerate: 20,
		PushRequests: true,
		Logger:       logger,
	}, surface, surface)

	go animate(srv, surface)
	go pumpEvents(srv, logger)

	logger.Info("starting demo server", "addr", fmt.Sprintf("%s:%d", *addr, *port))
	if err := srv.Serve(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// palette cycles through the same colours as example_push.py's
// Screen.colour_cycling.
var palette = []color.RGBA{
	{R: 0xff, A: 0xff},
	{G: 0xff, A: 0xff},
	{B: 0xff, A: 0xff},
	{R: 0xff, G: 0xff, A: 0xff},
	{G: 0xff, B: 0xff, A: 0xff},
	{R: 0xff, B: 0xff, A: 0xff},
}

// animate repaints the surface on a fixed tick, echoing
// example_push.py's Screen.draw: a moving square whose position follows a
// cosine wave and whose colour cycles every revolution.
func animate(srv *cairovnc.Server, surface *cairovnc.RGBASurface) {
	const squareSize = 20
	seq := 0
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		seq++
		delta := math.Cos(float64(seq) * math.Pi / 10)
		y := int((0.5+delta*0.4)*float64(height-squareSize)) + squareSize/2

		surface.Fill(color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff})
		surface.FillRect(image.Rect(width/2-squareSize/2, y, width/2+squareSize/2, y+squareSize),
			palette[(seq/20)%len(palette)])

		srv.NotifyFrame()
	}
}

// pumpEvents drains server input events and logs each one at debug level;
// the events do not affect the animation.
func pumpEvents(srv *cairovnc.Server, logger *slog.Logger) {
	ctx := context.Background()
	for {
		ev, ok := srv.NextEvent(ctx)
		if !ok {
			return
		}
		switch ev.Kind {
		case cairovnc.EventPointerMoveT:
			logger.Debug("pointer moved", "x", ev.X, "y", ev.Y, "buttons", ev.Buttons)
		case cairovnc.EventPointerClickT:
			logger.Debug("pointer click", "button", ev.Button, "down", ev.Down)
		case cairovnc.EventKeyT:
			logger.Debug("key event", "key", ev.Key, "down", ev.Down)
		}
	}
}
