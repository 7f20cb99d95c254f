// sketch is a headless drawing client: it joins a board, draws a few
// synthetic strokes, mirrors everything peers draw, and exports the
// board as PNG and PDF on exit. Useful for demos and for smoke-testing
// a relay deployment end to end.
package main

import (
	"context"
	"flag"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/supramm/canvas-connect/internal/canvas"
	"github.com/supramm/canvas-connect/internal/config"
	"github.com/supramm/canvas-connect/internal/export"
	"github.com/supramm/canvas-connect/internal/render"
	"github.com/supramm/canvas-connect/internal/session"
	"github.com/supramm/canvas-connect/internal/transport"
)

func main() {
	cfg := config.Load()

	room := flag.String("room", cfg.Session.Room, "board room to join")
	name := flag.String("name", cfg.Session.DisplayName, "display name")
	out := flag.String("out", "board", "output file basename (writes <out>.png and <out>.pdf)")
	idle := flag.Bool("idle", false, "join without drawing, only mirror peers")
	flag.Parse()

	clientID := canvas.NewClientID()
	engine := canvas.NewEngine()

	ws := transport.NewWS(transport.WSConfig{
		URL:              cfg.Session.RelayURL + "/ws/board/" + *room,
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		WriteTimeout:     cfg.WebSocket.WriteTimeout,
	})

	ctrl := session.NewController(clientID, engine, ws,
		session.WithMinPointDistance(cfg.Session.MinPointDistance))

	ctx := context.Background()
	if err := ctrl.Join(ctx, *name, "#e76f51"); err != nil {
		log.Fatalf("❌ Join failed: %v", err)
	}
	log.Printf("✅ Joined room %s as %s (%s)", *room, *name, clientID)

	if !*idle {
		drawDemo(ctx, ctrl, cfg.Render)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-quit:
			break loop
		case <-ticker.C:
			state, detail := ctrl.ConnState()
			log.Printf("[Sketch] %s (%s), %d strokes, %d peers",
				state, detail, len(ctrl.Snapshot().Strokes), len(ctrl.Users()))
			for _, u := range ctrl.Users() {
				log.Printf("[Sketch]   peer %s (%s), drawing=%v", u.ID, u.DisplayName, u.IsDrawing)
			}
		}
	}

	if err := ctrl.Leave(); err != nil {
		log.Printf("⚠️ Leave failed: %v", err)
	}
	exportBoard(ctrl.Snapshot(), cfg.Render, *out)
}

// drawDemo commits a sine wave and a diagonal, then erases a band
// through the middle. Exercises both tools over the wire.
func drawDemo(ctx context.Context, ctrl *session.Controller, rc config.RenderConfig) {
	w, h := float64(rc.Width), float64(rc.Height)

	ctrl.SetSettings(session.Settings{Tool: canvas.ToolBrush, Color: "#2a9d8f", Width: 4})
	ctrl.PointerDown(ctx, canvas.Point{X: 0, Y: h / 2})
	for x := 0.0; x <= w; x += 8 {
		ctrl.PointerMove(ctx, canvas.Point{X: x, Y: h/2 + math.Sin(x/60)*h/4})
	}
	ctrl.PointerUp(ctx)

	ctrl.SetSettings(session.Settings{Tool: canvas.ToolBrush, Color: "#264653", Width: 6})
	ctrl.PointerDown(ctx, canvas.Point{X: 0, Y: 0})
	ctrl.PointerMove(ctx, canvas.Point{X: w, Y: h})
	ctrl.PointerUp(ctx)

	ctrl.SetSettings(session.Settings{Tool: canvas.ToolEraser, Width: 30})
	ctrl.PointerDown(ctx, canvas.Point{X: w / 3, Y: h / 2})
	ctrl.PointerMove(ctx, canvas.Point{X: 2 * w / 3, Y: h / 2})
	ctrl.PointerUp(ctx)

	log.Printf("[Sketch] Demo strokes committed: %d", len(ctrl.Snapshot().Strokes))
}

func exportBoard(state canvas.State, rc config.RenderConfig, basename string) {
	img, err := render.Snapshot(state, render.Options{
		Width:      rc.Width,
		Height:     rc.Height,
		Scale:      rc.Scale,
		Background: rc.Background,
	})
	if err != nil {
		log.Printf("⚠️ Render failed: %v", err)
		return
	}

	f, err := os.Create(basename + ".png")
	if err != nil {
		log.Printf("⚠️ PNG export failed: %v", err)
		return
	}
	defer f.Close()
	if err := render.EncodePNG(f, img); err != nil {
		log.Printf("⚠️ PNG encode failed: %v", err)
		return
	}

	if err := export.PDF(basename+".pdf", state, float64(rc.Width), float64(rc.Height)); err != nil {
		log.Printf("⚠️ PDF export failed: %v", err)
		return
	}
	log.Printf("✅ Exported %s.png and %s.pdf (%d strokes)", basename, basename, len(state.Strokes))
}
