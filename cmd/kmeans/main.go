// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the parallel k-means demo of the MapCombine engine.
//
// Points come from a whitespace-separated coordinate file (one float per
// token, -d floats per point) or are generated uniformly at random with
// -r. Each Lloyd iteration is one engine run; between runs the driver
// reads the quiesced store, normalizes the new means and zeroes the slots
// in place. Iteration stops when no point changes cluster.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime"
	"strconv"
	"time"

	"mapcombine"
	"mapcombine/internal/kmeans"
	"mapcombine/internal/telemetry/runstats"
)

func main() {
	ncluster := flag.Int("c", 1, "Number of clusters")
	dim := flag.Int("d", 3, "Point dimension")
	grid := flag.Float64("g", 100.0, "Grid size for generated random points")
	randPt := flag.Int("r", 0, "Generate this many random points instead of reading a file")
	nshard := flag.Int("s", 0, "Number of shards (slots); 0 uses ncpu^2")
	ntask := flag.Int("t", 0, "Number of concurrent tasks; 0 uses the online CPU count")
	maxIter := flag.Int("max_iter", 0, "Iteration cap; 0 means run until stabilized")
	fixed := flag.Bool("f", false, "Use the first points as initial means instead of random ones")
	verbose := flag.Bool("v", false, "Print the means after every iteration")
	seed := flag.Int64("seed", 0, "RNG seed; 0 seeds from the clock")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address")
	flag.Parse()

	if *ncluster <= 0 || *dim <= 0 || *grid <= 0 {
		log.Fatal("do not accept negative values or zeroes for -c, -d, -g")
	}
	runstats.Enable(runstats.Config{Enabled: *metricsAddr != "", MetricsAddr: *metricsAddr})

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	var pts []kmeans.Point
	switch {
	case *randPt > 0:
		pts = kmeans.GeneratePoints(*randPt, *dim, *grid, rng)
	case flag.NArg() == 1:
		var err error
		pts, err = readPoints(flag.Arg(0), *dim)
		if err != nil {
			log.Fatalf("read points: %v", err)
		}
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [options] [point_file]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	if len(pts) < *ncluster {
		log.Fatalf("insufficient points (%d) to fit into %d cluster(s)", len(pts), *ncluster)
	}

	if *nshard <= 0 {
		c := runtime.NumCPU()
		*nshard = c * c
	}

	// initial means: either the first points or random draws on the grid
	initial := make([]kmeans.Centroid, *ncluster)
	for i := range initial {
		initial[i] = kmeans.Zero(*dim)
		if *fixed {
			copy(initial[i].Prj, pts[i].Prj)
		} else {
			for j := range initial[i].Prj {
				initial[i].Prj[j] = rng.Float64() * *grid
			}
		}
	}

	d := kmeans.NewDriver(pts, initial, *dim, *nshard, mapcombine.StoreOptions{})

	fmt.Printf("clustering %d point(s) into %d cluster(s), dim=%d, shards=%d\n",
		len(pts), *ncluster, *dim, *nshard)
	start := time.Now()
	iters := 0
	stabilized := false
	for {
		stepStart := time.Now()
		done, err := d.Step(*ntask)
		if err != nil {
			log.Fatalf("iteration %d: %v", iters+1, err)
		}
		runstats.ObserveRun(time.Since(stepStart))
		iters++
		if *verbose {
			fmt.Printf("iteration %d means:\n", iters)
			printMeans(d.Means)
		}
		if done || (*maxIter > 0 && iters >= *maxIter) {
			stabilized = done
			break
		}
	}
	elapsed := time.Since(start)

	status := "stabilized"
	if !stabilized {
		status = "stopped at the -max_iter cap"
	}
	fmt.Printf("%s after %d iteration(s) in %v with %d task(s)\n", status, iters, elapsed, *ntask)
	for i := range d.Means {
		if d.Means[i].Weight == 0 {
			log.Printf("cluster %d is empty; random means can do this, retry with -f", i)
		}
	}
	printMeans(d.Means)
}

func printMeans(means []kmeans.Centroid) {
	for _, m := range means {
		for j, x := range m.Prj {
			sep := "\t"
			if j == len(m.Prj)-1 {
				sep = "\n"
			}
			fmt.Printf("%f%s", x, sep)
		}
	}
}

// readPoints parses whitespace-separated floats, dim per point.
func readPoints(path string, dim int) ([]kmeans.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf []float64
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		x, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("token %q: %w", sc.Text(), err)
		}
		buf = append(buf, x)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(buf)%dim != 0 {
		return nil, fmt.Errorf("coordinate count (%d) is not a multiple of dimension (%d)", len(buf), dim)
	}
	pts := make([]kmeans.Point, len(buf)/dim)
	for i := range pts {
		pts[i] = kmeans.Point{Prj: buf[i*dim : (i+1)*dim], Cid: -1}
	}
	return pts, nil
}
