package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	client "github.com/matbott/amt8000"
)

// Executor runs fn against a fresh, authenticated, short-lived connection,
// retrying transient failures. Each command gets its own socket; the
// coordinator's poll connection is never shared.
type Executor = func(fn func(cli *client.Client) error) error

func newExecutor(cfg Config) Executor {
	var lock sync.Mutex
	return func(fn func(cli *client.Client) error) error {
		t := time.Now()
		lock.Lock()
		defer lock.Unlock()
		log.Debugf("got client lock after %s", time.Since(t))

		bo := backoff.NewExponentialBackOff()
		bo.MaxInterval = time.Second * 5
		bo.MaxElapsedTime = time.Minute

		return backoff.RetryNotify(func() error {
			requestCounter.Inc()
			if err := client.WithConnection(cfg.conn(), fn); err != nil {
				requestErrorCounter.Inc()
				var authErr *client.AuthError
				if errors.As(err, &authErr) {
					// the panel rejected us on purpose; retrying
					// with the same credentials cannot help.
					return backoff.Permanent(err)
				}
				return err
			}
			return nil
		}, bo, func(err error, _ time.Duration) {
			log.Error("command to central failed", "err", err)
		})
	}
}

func armHandler(execute Executor) http.HandlerFunc {
	return commandHandler("arm", execute, func(cli *client.Client, partition byte) (bool, error) {
		return cli.Arm(partition)
	})
}

func disarmHandler(execute Executor) http.HandlerFunc {
	return commandHandler("disarm", execute, func(cli *client.Client, partition byte) (bool, error) {
		return cli.Disarm(partition)
	})
}

func commandHandler(
	name string,
	execute Executor,
	cmd func(cli *client.Client, partition byte) (bool, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		partition, err := parsePartition(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var acked bool
		if err := execute(func(cli *client.Client) error {
			var err error
			acked, err = cmd(cli, partition)
			return err
		}); err != nil {
			log.Error("could not "+name, "partition", partition, "err", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if !acked {
			// firmware variants answer differently; the next poll
			// will reconcile the real state.
			log.Warn(name+" not acknowledged", "partition", partition)
			http.Error(w, "panel did not acknowledge, re-check status", http.StatusConflict)
			return
		}
		log.Info(name, "partition", partition)
		w.WriteHeader(http.StatusNoContent)
	}
}

func panicHandler(execute Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		kind := client.PanicAudible
		if r.URL.Query().Get("kind") == "silent" {
			kind = client.PanicSilent
		}
		var acked bool
		if err := execute(func(cli *client.Client) error {
			var err error
			acked, err = cli.Panic(kind)
			return err
		}); err != nil {
			log.Error("could not trigger panic", "err", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if !acked {
			http.Error(w, "panel did not acknowledge, re-check status", http.StatusConflict)
			return
		}
		log.Warn("panic triggered", "kind", kind)
		w.WriteHeader(http.StatusNoContent)
	}
}

func refreshZonesHandler(coord *client.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		if err := coord.RefreshZones(r.Context()); err != nil {
			log.Error("could not refresh zones", "err", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		log.Info("paired zones refreshed")
		w.WriteHeader(http.StatusNoContent)
	}
}

func parsePartition(r *http.Request) (byte, error) {
	raw := r.URL.Query().Get("partition")
	if raw == "" {
		return 0, nil // all partitions
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > 255 {
		return 0, fmt.Errorf("invalid partition: %q", raw)
	}
	return byte(n), nil
}
