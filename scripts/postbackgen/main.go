package main

import (
	"fmt"
	"math/rand"
)

func main() {
	events := []string{"registration", "first_deposit", "deposit", "profit"}
	houses := []string{"bet365", "betano", "stake", "pixbet"}
	affiliates := []string{"joao", "maria", "pedro", "ana"}

	base := "http://localhost:3000"

	for i := 0; i < 500; i++ {
		event := events[rand.Intn(len(events))]
		house := houses[rand.Intn(len(houses))]
		affiliate := affiliates[rand.Intn(len(affiliates))]

		url := fmt.Sprintf("%s/webhook/%s/%s?subid=%s&customer_id=cust-%04d",
			base, house, event, affiliate, rand.Intn(2000))

		if event == "deposit" || event == "profit" {
			url += fmt.Sprintf("&amount=%d.%02d", 20+rand.Intn(480), rand.Intn(100))
		}

		fmt.Println(url)
	}
}
