package main

import (
	"fmt"
	"math/rand"
	"time"

	forest "github.com/storagehub/go-forest"
)

func main() {
	benchmarkInsertInExisting()
	benchmarkProofGeneration()
}

func benchmarkInsertInExisting() {
	rand.Seed(time.Now().UnixNano())

	// Number of existing leaves in the forest
	n := 1000000
	// Leaves to be inserted afterwards
	toInsert := 10000
	total := n + toInsert

	keys := make([][]byte, n)
	toInsertKeys := make([][]byte, toInsert)
	value := []byte("value")

	for i := 0; i < 4; i++ {
		// Generate set of keys once
		for i := 0; i < total; i++ {
			key := make([]byte, 32)
			rand.Read(key)
			if i < n {
				keys[i] = key
			} else {
				toInsertKeys[i-n] = key
			}
		}
		fmt.Printf("Generated key set %d\n", i)

		// Create forest from same keys multiple times
		for i := 0; i < 5; i++ {
			root := forest.New()
			for _, k := range keys {
				if err := root.Insert(k, value); err != nil {
					panic(err)
				}
			}
			root.Commit()

			// Now insert the 10k leaves and measure time
			start := time.Now()
			for _, k := range toInsertKeys {
				if err := root.Insert(k, value); err != nil {
					panic(err)
				}
			}
			root.Commit()
			elapsed := time.Since(start)
			fmt.Printf("Took %v to insert and commit %d leaves\n", elapsed, toInsert)
		}
	}
}

func benchmarkProofGeneration() {
	rand.Seed(time.Now().UnixNano())

	n := 100000
	challenges := 20

	keys := make([][]byte, n)
	value := []byte("value")
	root := forest.New()
	for i := 0; i < n; i++ {
		key := make([]byte, 32)
		rand.Read(key)
		keys[i] = key
		if err := root.Insert(key, value); err != nil {
			panic(err)
		}
	}
	root.Commit()

	for i := 0; i < 5; i++ {
		challenged := make([][]byte, challenges)
		for j := range challenged {
			challenged[j] = keys[rand.Intn(n)]
		}

		start := time.Now()
		proof, err := forest.MakeForestProof(root, challenged)
		if err != nil {
			panic(err)
		}
		elapsed := time.Since(start)
		serialized, err := proof.Serialize()
		if err != nil {
			panic(err)
		}
		fmt.Printf("Took %v to prove %d keys (%d proof bytes)\n", elapsed, challenges, len(serialized))
	}
}
