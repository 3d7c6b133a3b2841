package main

import (
	"context"
	crypto_tls "crypto/tls"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"xsshost/internal/hack"
	"xsshost/internal/platform"
	"xsshost/internal/server"
	"xsshost/internal/surface"
	tlsutil "xsshost/internal/tls"
	"xsshost/internal/types"
)

func runHost() error {
	width, height, err := parseSize(*flagSize)
	if err != nil {
		return err
	}
	if *flagAddr != "" && *flagToken == "" {
		return fmt.Errorf("--token is required when --addr is set")
	}
	if *flagFPS <= 0 {
		return fmt.Errorf("--fps must be > 0")
	}
	if (*flagTLSCert != "") != (*flagTLSKey != "") {
		return fmt.Errorf("--tls-cert and --tls-key must both be set")
	}

	st, err := newSetup()
	if err != nil {
		return err
	}

	var quitOnce sync.Once
	done := make(chan struct{})
	quit := func() { quitOnce.Do(func() { close(done) }) }
	onFault := func(err error) {
		log.Printf("renderer failed: %v", err)
		quit()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		surf    types.Surface
		frames  *surface.Offscreen
		win     *surface.X11
		cleanup = func() {}
	)
	if *flagWindow {
		pcfg := &platform.Config{Display: *flagDisplay, StartX: *flagStartX, Width: width, Height: height}
		platform.SaveTermState()
		cleanup, err = platform.Init(pcfg)
		if err != nil {
			return err
		}
		platform.RestoreTermState()
		defer cleanup()

		if !platform.Detect(*pcfg).X11 {
			return fmt.Errorf("no display available; use --display, set DISPLAY, or use --start-x")
		}
		win, err = surface.OpenX11(pcfg.Display, "xsshost: "+*flagHack, width, height)
		if err != nil {
			return err
		}
		defer win.Close()
		frames = surface.NewOffscreen(width, height)
		surf = &mirrored{win: win, frames: frames}
	} else {
		frames = surface.NewOffscreen(width, height)
		surf = frames
	}

	sess, err := st.session(surf, quit, onFault)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.SurfaceChanged(width, height); err != nil {
		return err
	}
	if win != nil {
		// The window starts animating once it is mapped.
		go win.Run(ctx, windowEvents{Session: sess, quit: quit})
	} else {
		sess.SetVisible(true)
	}

	var srv *server.Server
	if *flagAddr != "" {
		srv, err = newServer(sess, frames, st)
		if err != nil {
			return err
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				log.Printf("server: %v", err)
				quit()
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Printf("received %s, shutting down...", sig)
	case <-done:
		log.Printf("session %s ended, shutting down...", sess.ID)
	}

	if srv != nil {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}
	if err := st.prefs.Save(); err != nil {
		log.Printf("prefs: %v", err)
	}
	return nil
}

func newServer(sess server.Session, frames types.FrameSource, st *setup) (*server.Server, error) {
	var tlsCert, tlsKey string
	var tlsConfig *crypto_tls.Config
	if *flagTLSCert != "" {
		tlsCert, tlsKey = *flagTLSCert, *flagTLSKey
	} else if *flagTLS {
		cert, err := tlsutil.SelfSigned(365*24*time.Hour, splitList(*flagTLSHosts)...)
		if err != nil {
			return nil, fmt.Errorf("self-signed cert: %w", err)
		}
		log.Printf("tls: self-signed certificate SHA-256 %s", cert.Fingerprint)
		tlsConfig = cert.Config
	}

	var hacks []server.HackInfo
	for _, name := range hack.Names() {
		e, _ := hack.Lookup(name)
		hacks = append(hacks, server.HackInfo{Name: name, Description: e.Description, Defaults: e.Defaults})
	}

	return server.New(server.Config{
		Addr:    *flagAddr,
		Token:   *flagToken,
		FPS:     *flagFPS,
		Quality: *flagQuality,

		OfferTimeout:   *flagOfferTimeout,
		AllowedOrigins: splitList(*flagAllowOrigins),
		AuthFailLimit:  *flagAuthFailLimit,
		AuthFailWindow: *flagAuthFailWindow,

		TLSCert: tlsCert,
		TLSKey:  tlsKey,
		TLS:     tlsConfig,

		Frames:  frames,
		Session: sess,
		Prefs:   st.prefs,
		Hacks:   hacks,
	}), nil
}
