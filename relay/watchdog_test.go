package relay

import (
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("watchdog", func() {
	It("cancels after the timeout without activity", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		wd := newWatchdog(30*time.Millisecond, cancel)
		defer wd.Stop()

		Eventually(ctx.Done()).Should(BeClosed())
		Expect(wd.Expired()).To(BeTrue())
	})

	It("restarts the countdown on every read", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		wd := newWatchdog(80*time.Millisecond, cancel)
		defer wd.Stop()

		reader := wd.Reader(strings.NewReader(strings.Repeat("x", 8)))
		buf := make([]byte, 1)
		for i := 0; i < 8; i++ {
			time.Sleep(20 * time.Millisecond)
			_, err := reader.Read(buf)
			Expect(err).NotTo(HaveOccurred())
		}

		Expect(ctx.Err()).NotTo(HaveOccurred())
		Expect(wd.Expired()).To(BeFalse())
	})

	It("does nothing once stopped", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		wd := newWatchdog(20*time.Millisecond, cancel)
		wd.Stop()

		Consistently(ctx.Done(), 100*time.Millisecond).ShouldNot(BeClosed())
		Expect(wd.Expired()).To(BeFalse())
	})
})
