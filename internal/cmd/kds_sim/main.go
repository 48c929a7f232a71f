// kds_sim runs the command scheduler against emulated CU register windows:
// it opens contexts for a number of simulated clients, pumps START commands
// through the full pipeline and prints per-CU statistics. Useful for
// exercising the scheduler without hardware and for rough throughput
// numbers (see -echo).
package main

import (
	goflag "flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/janpfeifer/must"
	flag "github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/mipres/XRT/ert"
	"github.com/mipres/XRT/kds"
	"github.com/mipres/XRT/xcu"
)

var (
	flagNumCUs   = flag.Int("cus", 4, "Number of emulated compute units")
	flagClients  = flag.Int("clients", 2, "Number of simulated client processes")
	flagCommands = flag.Int("commands", 1000, "START commands submitted per client")
	flagEcho     = flag.Bool("echo", false, "Echo mode: complete commands at dispatch, no register emulation")
	flagPolling  = flag.Duration("polling", 200*time.Microsecond, "CU completion poll interval")
	flagTimeout  = flag.Duration("timeout", 10*time.Second, "Per-command completion wait, also the CU hang timeout")
)

// simRegs emulates an HLS CU that finishes a command on the first status
// read after start.
type simRegs struct {
	mu      sync.Mutex
	regs    map[uint32]uint32
	running int
}

func newSimRegs() *simRegs { return &simRegs{regs: make(map[uint32]uint32)} }

func (r *simRegs) Read32(off uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if off != 0 {
		return r.regs[off]
	}
	if r.running > 0 {
		r.running--
		return xcu.APDone | xcu.APReady
	}
	return xcu.APIdle
}

func (r *simRegs) Write32(off, val uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if off == 0 {
		if val&xcu.APStart != 0 {
			r.running++
		}
		if val&xcu.APReset != 0 {
			r.running = 0
		}
		return
	}
	r.regs[off] = val
}

// simLocker accepts any single active bitstream.
type simLocker struct {
	mu     sync.Mutex
	active *uuid.UUID
	refs   int
}

func (l *simLocker) Lock(id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active != nil && *l.active != id {
		return fmt.Errorf("bitstream %s is active", l.active)
	}
	if l.active == nil {
		cp := id
		l.active = &cp
	}
	l.refs++
	return nil
}

func (l *simLocker) Unlock(id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		l.active = nil
	}
	return nil
}

// simResolver serves packets from an in-memory table.
type simResolver struct {
	mu   sync.Mutex
	next kds.BufferHandle
	bufs map[kds.BufferHandle]*simBuf
}

type simBuf struct{ words []uint32 }

func (b *simBuf) Words() []uint32 { return b.words }
func (b *simBuf) Release()        {}

func (r *simResolver) add(words []uint32) kds.BufferHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.bufs[r.next] = &simBuf{words: words}
	return r.next
}

func (r *simResolver) Get(h kds.BufferHandle) (kds.ExecBuffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bufs[h]
	if !ok {
		return nil, fmt.Errorf("no exec buffer %d", h)
	}
	delete(r.bufs, h)
	return b, nil
}

func main() {
	klog.InitFlags(nil)
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	flag.Parse()

	resolver := &simResolver{bufs: make(map[kds.BufferHandle]*simBuf)}
	sched := kds.New(&simLocker{}, resolver, nil, nil)
	sched.Echo = *flagEcho

	for i := 0; i < *flagNumCUs; i++ {
		cu := must.M1(xcu.New(xcu.Info{
			Model:      xcu.ModelHLS,
			CUIdx:      i,
			Protocol:   xcu.CtrlHS,
			Addr:       0x1800000 + uint64(i)*0x10000,
			KernelName: "simkern",
			InstName:   fmt.Sprintf("simkern_%d", i+1),
		}, newSimRegs(), nil))
		cu.SetPollInterval(*flagPolling)
		cu.SetRunTimeout(*flagTimeout)
		must.M(sched.AddCU(cu))
	}
	must.M(sched.Start())
	defer sched.Stop()

	bitstream := uuid.New()
	cuMask := uint32(1)<<uint(*flagNumCUs) - 1

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < *flagClients; i++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			client := sched.NewClient(pid)
			defer sched.DestroyClient(client)
			must.M(sched.OpenContext(client, bitstream, kds.VirtualCU, false))
			defer func() { must.M(sched.CloseContext(client, bitstream, kds.VirtualCU, false)) }()

			for n := 0; n < *flagCommands; n++ {
				pkt := &ert.Packet{
					State:   ert.CmdStateNew,
					Opcode:  ert.OpStartCU,
					Payload: []uint32{cuMask, uint32(n), uint32(pid)},
				}
				h := resolver.add(pkt.Encode())
				must.M(sched.SubmitExecBuf(client, h, nil))
				if client.PollForCompletion(true, *flagTimeout) != 1 {
					fmt.Fprintf(os.Stderr, "pid %d: command %d never completed\n", pid, n)
					os.Exit(1)
				}
			}
		}(1000 + i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	total := *flagClients * *flagCommands
	fmt.Printf("%d commands, %d clients, %d CUs in %s (%.0f cmds/s)\n",
		total, *flagClients, *flagNumCUs, elapsed.Round(time.Millisecond),
		float64(total)/elapsed.Seconds())
	for i := 0; i < *flagNumCUs; i++ {
		cu := sched.CU(i)
		fmt.Printf("--- %s\n%s", cu.Info.InstName, cu.Stat())
	}
}
