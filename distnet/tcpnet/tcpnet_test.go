package tcpnet_test

import (
	"context"
	"fmt"
	"net"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/distdir-go/distdir/distnet"
	"github.com/distdir-go/distdir/distnet/tcpnet"
)

// freePorts finds n free TCP loopback ports so the test doesn't depend on
// any fixed port being available.
func freePorts(n int) ([]string, error) {
	addrs := make([]string, n)
	listeners := make([]net.Listener, n)
	for i := 0; i < n; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, err
		}
		listeners[i] = ln
		addrs[i] = ln.Addr().String()
	}
	for _, ln := range listeners {
		ln.Close()
	}
	return addrs, nil
}

var _ = Describe("Transport", func() {
	It("should form a full mesh and exchange point-to-point messages", func() {
		addrs, err := freePorts(3)
		Expect(err).NotTo(HaveOccurred())

		transports := make([]*tcpnet.Transport, 3)
		var wg sync.WaitGroup
		errs := make([]error, 3)
		wg.Add(3)
		for r := 0; r < 3; r++ {
			go func(r int) {
				defer wg.Done()
				tr, err := tcpnet.Dial(context.Background(), tcpnet.Config{Addrs: addrs, Rank: r})
				transports[r] = tr
				errs[r] = err
			}(r)
		}
		wg.Wait()
		for _, err := range errs {
			Expect(err).NotTo(HaveOccurred())
		}
		defer func() {
			for _, tr := range transports {
				tr.Close()
			}
		}()

		recvBuf := make([]byte, 4)
		req, err := transports[2].IRecv(context.Background(), 0, 5, distnet.Int32, recvBuf)
		Expect(err).NotTo(HaveOccurred())

		sendReq, err := transports[0].ISend(context.Background(), 2, 5, distnet.Int32, []byte{9, 8, 7, 6})
		Expect(err).NotTo(HaveOccurred())
		Expect(sendReq.Wait(context.Background())).To(Succeed())
		Expect(req.Wait(context.Background())).To(Succeed())
		Expect(recvBuf).To(Equal([]byte{9, 8, 7, 6}))
	})

	It("should compute the transpose of the count matrix via AllToAll", func() {
		addrs, err := freePorts(2)
		Expect(err).NotTo(HaveOccurred())

		transports := make([]*tcpnet.Transport, 2)
		var wg sync.WaitGroup
		wg.Add(2)
		for r := 0; r < 2; r++ {
			go func(r int) {
				defer wg.Done()
				tr, err := tcpnet.Dial(context.Background(), tcpnet.Config{Addrs: addrs, Rank: r})
				Expect(err).NotTo(HaveOccurred())
				transports[r] = tr
			}(r)
		}
		wg.Wait()
		defer func() {
			for _, tr := range transports {
				tr.Close()
			}
		}()

		results := make([][]int, 2)
		wg.Add(2)
		for r := 0; r < 2; r++ {
			go func(r int) {
				defer wg.Done()
				send := []int{r, r + 1}
				res, err := transports[r].AllToAll(context.Background(), send)
				Expect(err).NotTo(HaveOccurred())
				results[r] = res
			}(r)
		}
		wg.Wait()

		Expect(results[0]).To(Equal([]int{0, 1}))
		Expect(results[1]).To(Equal([]int{1, 2}))
		fmt.Fprint(GinkgoWriter, "ok\n")
	})
})
