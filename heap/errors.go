package heap

import "fmt"

func errAdjacency(addrA, sizeA, addrB int) error {
	return fmt.Errorf("heap: adjacency broken: addr(A)=%d size(A)=%d addr(B)=%d", addrA, sizeA, addrB)
}

func errDoubleFree(addrA, addrB int) error {
	return fmt.Errorf("heap: adjacent free blocks not coalesced: %d, %d", addrA, addrB)
}
