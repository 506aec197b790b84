package charge2earn

import "testing"

func TestQueries(t *testing.T) {
	op1, op2, d1, d2, d3 := newWallet(t), newWallet(t), newWallet(t), newWallet(t), newWallet(t)
	h := newHarness(t, DefaultParams(), op1, op2, d1, d2, d3)
	c1 := h.registerCharger(op1, h.treasury, "Q1", 2, 0)
	c2 := h.registerCharger(op2, h.treasury, "Q2", 4, 0)

	chargers, err := h.query().Chargers()
	if err != nil || len(chargers) != 2 {
		t.Fatalf("expected 2 chargers, got %d err=%v", len(chargers), err)
	}
	for _, view := range chargers {
		if view.Account != c1 && view.Account != c2 {
			t.Fatalf("unexpected charger account %s", view.Account.Hex())
		}
	}
	record, ok, err := h.query().Charger(c2)
	if err != nil || !ok || record.Operator != op2.addr || record.RewardRate != 4 {
		t.Fatalf("unexpected charger %+v ok=%v err=%v", record, ok, err)
	}

	h.charge(d1, c1, op1, 0, 10)  // 20
	h.charge(d2, c2, op2, 0, 10)  // 40
	h.charge(d3, c1, op1, 0, 100) // 200

	board, err := h.query().Leaderboard(2)
	if err != nil || len(board) != 2 {
		t.Fatalf("expected 2 leaders, got %d err=%v", len(board), err)
	}
	if board[0].Owner != d3.addr || board[0].Balance != 200 || board[1].Owner != d2.addr {
		t.Fatalf("unexpected leaderboard %+v", board)
	}
	if all, _ := h.query().Leaderboard(0); len(all) != 3 {
		t.Fatalf("unbounded leaderboard returned %d drivers", len(all))
	}

	ix, err := NewCreateListingInstruction(d3.addr, 10, 9)
	h.mustSucceed(h.exec(ix, err, d3))
	ix, err = NewCreateListingInstruction(d2.addr, 10, 3)
	h.mustSucceed(h.exec(ix, err, d2))
	ix, err = NewCreateListingInstruction(d1.addr, 5, 6)
	h.mustSucceed(h.exec(ix, err, d1))
	ix, err = NewCancelListingInstruction(d1.addr)
	h.mustSucceed(h.exec(ix, err, d1))

	listings, err := h.query().Listings()
	if err != nil || len(listings) != 2 {
		t.Fatalf("expected 2 open listings, got %d err=%v", len(listings), err)
	}
	if listings[0].Seller != d2.addr || listings[1].Seller != d3.addr {
		t.Fatalf("listings must be cheapest first: %+v", listings)
	}
	if _, ok, err := h.query().Purchased(d1.addr); err != nil || ok {
		t.Fatalf("no purchases were made")
	}
}
