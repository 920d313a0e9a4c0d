package media

var (
	DefaultPacketQueueSize = 4096
	DefaultFrameQueueSize  = 50
)

type PacketQueue = Queue[*Packet]

type FrameQueue = Queue[*Frame]

func NewPacketQueue(max int) *PacketQueue {
	return NewQueue(max, packetSize, (*Packet).Release)
}

func NewFrameQueue(max int) *FrameQueue {
	return NewQueue(max, (*Frame).Size, (*Frame).Release)
}

// PeekPts returns the pts of the oldest queued frame.
func PeekPts(fq *FrameQueue) (float64, bool) {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()

	if fq.count == 0 {
		return 0, false
	}
	return fq.items[fq.head].Pts, true
}
